package synth

import (
	"context"
	"errors"
	"testing"

	"assemblyline/internal/artifact"
	"assemblyline/internal/lang/typescript"
	"assemblyline/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specs(paths ...string) []artifact.MissingFileSpec {
	out := make([]artifact.MissingFileSpec, 0, len(paths))
	for _, p := range paths {
		out = append(out, artifact.MissingFileSpec{ExpectedPath: p, RequiredExports: []string{"x"}, ImportedBy: []string{"src/app.ts"}})
	}
	return out
}

func TestRoute(t *testing.T) {
	fs := typescript.New().FileStructure()
	got := Route([]artifact.GeneratedFile{
		{Path: "src/lib/missing.ts", Content: "a"},
		{Path: "lib/helper.ts", Content: "b"},
		{Path: "userService.ts", Content: "c"},
		{Path: "src/components/index.ts", Content: "d"},
		{Path: "../escape.ts", Content: "e"},
		{Path: `src\lib\missing.ts`, Content: "a2"},
	}, []string{"src/lib/missing.ts", "src/lib/helper.ts", "src/index.ts"}, nil, fs)

	byPath := map[string]string{}
	for _, f := range got {
		byPath[f.Path] = f.Content
	}
	assert.Equal(t, map[string]string{
		"src/lib/missing.ts":          "a2",
		"src/lib/helper.ts":           "b",
		"src/services/userService.ts": "c",
		"src/components/index.ts":     "d",
	}, byPath)
}

func TestRouteKeepsNewFileInOtherDirectory(t *testing.T) {
	fs := typescript.New().FileStructure()
	importer := "import { User } from '../models/user';\n"
	known := map[string]string{"src/routes/user.ts": importer}
	got := Route([]artifact.GeneratedFile{
		{Path: "src/models/user.ts", Content: "export interface User { id: string }\n"},
	}, []string{"src/routes/user.ts"}, known, fs)
	assert.Equal(t, []artifact.GeneratedFile{{Path: "src/models/user.ts", Content: "export interface User { id: string }\n"}}, got)

	// the target is filled by the reply itself
	got = Route([]artifact.GeneratedFile{
		{Path: "src/lib/a.ts", Content: "first"},
		{Path: "lib/a.ts", Content: "second"},
	}, []string{"src/lib/a.ts"}, nil, fs)
	assert.Equal(t, []artifact.GeneratedFile{
		{Path: "lib/a.ts", Content: "second"},
		{Path: "src/lib/a.ts", Content: "first"},
	}, got)

	// the directory already exists in the set
	got = Route([]artifact.GeneratedFile{{Path: "src/util/a.ts", Content: "x"}},
		[]string{"src/lib/a.ts"}, map[string]string{"src/util/other.ts": ""}, fs)
	assert.Equal(t, "src/util/a.ts", got[0].Path)
}

func TestFixDoesNotOverwriteImporter(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Enqueue(PhaseFix, `{"files":[{"path":"src/models/user.ts","content":"export interface User { id: string }\n"}]}`)
	s := NewLLM(fake, Options{})
	importer := "import { User } from '../models/user';\nexport const list = (): User[] => [];\n"
	files, err := s.Fix(context.Background(), FixRequest{
		Stack:  "typescript",
		Errors: []artifact.ValidationError{{File: "src/routes/user.ts", Message: "cannot resolve '../models/user'"}},
		Files:  []artifact.GeneratedFile{{Path: "src/routes/user.ts", Content: importer}},
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/models/user.ts", files[0].Path)
}

func TestGenerateDoesNotMergeFilesSharingAName(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Enqueue(PhaseGenerate, `{"files":[{"path":"src/lib/a.ts","content":"export const x = 1;"},{"path":"src/vendor/a.ts","content":"export const y = 2;"}]}`)
	s := NewLLM(fake, Options{BatchSize: 5, Concurrency: 1})
	files, err := s.Generate(context.Background(), GenerateRequest{Stack: "typescript", Specs: specs("src/lib/a.ts")})
	require.NoError(t, err)
	byPath := map[string]string{}
	for _, f := range files {
		byPath[f.Path] = f.Content
	}
	assert.Equal(t, "export const x = 1;", byPath["src/lib/a.ts"])
	assert.Equal(t, "export const y = 2;", byPath["src/vendor/a.ts"])
}

func TestDecodeFiles(t *testing.T) {
	files, err := DecodeFiles([]byte("```json\n{\"files\":[{\"path\":\"a.ts\",\"content\":\"x\"},{\"path\":\"\",\"content\":\"y\"}]}\n```"))
	require.NoError(t, err)
	assert.Equal(t, []artifact.GeneratedFile{{Path: "a.ts", Content: "x"}}, files)

	files, err = DecodeFiles([]byte(`[{"path":"b.ts","content":"y"}]`))
	require.NoError(t, err)
	assert.Equal(t, "b.ts", files[0].Path)

	files, err = DecodeFiles([]byte(`{"files":[{"path":"c.ts","content":"export const c = 1;`))
	require.NoError(t, err)
	assert.Equal(t, "export const c = 1;", files[0].Content)

	_, err = DecodeFiles([]byte("I cannot help with that"))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGenerateBatchesAndRoutes(t *testing.T) {
	fake := llm.NewFakeClient()
	s := NewLLM(fake, Options{BatchSize: 2, Concurrency: 1})
	files, err := s.Generate(context.Background(), GenerateRequest{
		Stack:     "typescript",
		Structure: typescript.New().FileStructure(),
		Specs:     specs("src/lib/a.ts", "src/lib/b.ts", "src/lib/c.ts"),
		Context:   []artifact.GeneratedFile{{Path: "src/app.ts", Content: "import { x } from './lib/a';"}, {Path: "src/other.ts"}},
	})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "src/lib/a.ts", files[0].Path)
	assert.Contains(t, files[0].Content, "export const x")

	calls := fake.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, PhaseGenerate, c.Phase)
		assert.Contains(t, string(c.Input), `"src/app.ts"`)
		assert.NotContains(t, string(c.Input), `"src/other.ts"`)
	}
}

func TestGenerateRetriesMalformedReply(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Enqueue(PhaseGenerate, `sorry, here is nothing useful`)
	fake.Enqueue(PhaseGenerate, `{"files":[{"path":"src/lib/a.ts","content":"export const x = 1;\n"}]}`)
	s := NewLLM(fake, Options{ParseRetries: 1})
	files, err := s.Generate(context.Background(), GenerateRequest{Stack: "typescript", Specs: specs("src/lib/a.ts")})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Len(t, fake.Calls(), 2)
}

func TestGenerateSurfacesMalformedAfterRetries(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Enqueue(PhaseGenerate, `nope`, `still nope`)
	s := NewLLM(fake, Options{ParseRetries: 1})
	_, err := s.Generate(context.Background(), GenerateRequest{Stack: "typescript", Specs: specs("src/lib/a.ts")})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGeneratePartialBatchFailure(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.EnqueueError(PhaseGenerate, errors.New("provider down"))
	s := NewLLM(fake, Options{BatchSize: 1, Concurrency: 1})
	files, err := s.Generate(context.Background(), GenerateRequest{Stack: "typescript", Specs: specs("src/lib/a.ts", "src/lib/b.ts")})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/lib/b.ts", files[0].Path)
}

func TestFixRoutesToAffectedFiles(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Enqueue(PhaseFix, `{"files":[{"path":"b.ts","content":"export const foo = 1;\n"}]}`)
	s := NewLLM(fake, Options{})
	files, err := s.Fix(context.Background(), FixRequest{
		Stack:  "typescript",
		Errors: []artifact.ValidationError{{File: "src/a.ts", Message: "'foo' is not exported by './b'"}},
		Files:  []artifact.GeneratedFile{{Path: "src/a.ts"}, {Path: "src/b.ts"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []artifact.GeneratedFile{{Path: "src/b.ts", Content: "export const foo = 1;\n"}}, files)

	files, err = s.Fix(context.Background(), FixRequest{})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPromptsCarryOutputFormat(t *testing.T) {
	assert.Contains(t, generatePrompt("typescript"), "[OUTPUT_FORMAT]")
	assert.Contains(t, generatePrompt("typescript"), "required_exports")
	assert.Contains(t, fixPrompt("go"), "Fix the listed errors in a go project.")
}
