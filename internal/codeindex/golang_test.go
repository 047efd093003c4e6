package codeindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleGoSource = `package widgets

import "fmt"

// Widget is a thing.
type Widget struct {
	Name string
}

// Render prints the widget.
func (w *Widget) Render() {
	fmt.Println(w.Name)
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}
`

func TestGoPackExtractsStructAndMethods(t *testing.T) {
	pack := NewGoPack()
	entities, err := pack.Parse("widgets.go", []byte(sampleGoSource))
	require.NoError(t, err)

	var names []string
	for _, e := range entities {
		names = append(names, e.QualifiedName)
	}
	require.Contains(t, names, "widgets.Widget")
	require.Contains(t, names, "widgets.Widget.Render")
	require.Contains(t, names, "widgets.NewWidget")
}

func TestGoPackMethodSignatureAndDocstring(t *testing.T) {
	pack := NewGoPack()
	entities, err := pack.Parse("widgets.go", []byte(sampleGoSource))
	require.NoError(t, err)

	for _, e := range entities {
		if e.QualifiedName == "widgets.Widget.Render" {
			require.Equal(t, KindMethod, e.Kind)
			require.Equal(t, "Render prints the widget.", e.Docstring)
			return
		}
	}
	t.Fatal("Render method not found")
}

func TestStableIDExcludesLineNumbers(t *testing.T) {
	id1 := StableID("proj", "a.go", "pkg.Foo", "function")
	id2 := StableID("proj", "a.go", "pkg.Foo", "function")
	require.Equal(t, id1, id2)
	require.Len(t, id1, 16)

	id3 := StableID("proj", "a.go", "pkg.Bar", "function")
	require.NotEqual(t, id1, id3)
}
