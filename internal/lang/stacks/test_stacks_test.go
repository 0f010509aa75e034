package stacks

import (
	"errors"
	"testing"

	"assemblyline/internal/lang"
	"assemblyline/internal/lang/golang"
	"assemblyline/internal/lang/typescript"
	"assemblyline/internal/tester"
)

func TestNewRegistryDefaults(t *testing.T) {
	r, err := NewRegistry("")
	tester.NoErr(t, err)
	tester.Eq(t, r.IDs(), []string{golang.ID, typescript.ID})

	def, err := r.Default()
	tester.NoErr(t, err)
	tester.Eq(t, def.ID(), typescript.ID)

	tester.True(t, errors.Is(r.Register(typescript.New()), lang.ErrDuplicateAdapter))
}

func TestNewRegistryExplicitDefault(t *testing.T) {
	r, err := NewRegistry("GO")
	tester.NoErr(t, err)
	def, err := r.Default()
	tester.NoErr(t, err)
	tester.Eq(t, def.ID(), golang.ID)

	_, err = NewRegistry("cobol")
	tester.True(t, errors.Is(err, lang.ErrUnknownStack))
}
