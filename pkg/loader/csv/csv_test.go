package csv

import (
	"context"
	"testing"

	"github.com/kgrag/backend/pkg/loader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	in := "name, born ,city\n" +
		"Alexander Graham Bell,1847,Edinburgh\n" +
		",,\n" +
		"\"Gray, Elisha\",1835,\n" +
		"Tesla,1856,Smiljan,extra\n"

	got, err := ParseCSV([]byte(in))
	require.NoError(t, err)
	assert.Equal(t,
		"name: Alexander Graham Bell; born: 1847; city: Edinburgh\n\n"+
			"name: Gray, Elisha; born: 1835\n\n"+
			"name: Tesla; born: 1856; city: Smiljan; column 4: extra",
		string(got))
}

func TestParseCSVHeaderOnlyAndEmpty(t *testing.T) {
	got, err := ParseCSV([]byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "a, b", string(got))

	_, err = ParseCSV([]byte("\n , \n"))
	assert.Error(t, err)
}

func TestCSVGraphLoader(t *testing.T) {
	l := NewCSVGraphLoader(loader.BytesLoader("k,v\nx,1\n"))
	got, err := l.GetFileText(context.Background(), loader.GraphFile{ID: "1", FilePath: "t.csv"})
	require.NoError(t, err)
	assert.Equal(t, "k: x; v: 1", string(got))
}
