package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects map[string]string

func (f fakeObjects) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestObjectSource(t *testing.T) {
	objects := fakeObjects{
		"raw/abc/admissions.txt": "Admission requires a 3.0 GPA.",
		"other/x.txt":            "ignored",
	}
	src := &ObjectSource{store: objects, prefix: "raw/"}

	keys, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/abc/admissions.txt"}, keys)

	rc, err := src.Open(context.Background(), keys[0])
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "Admission requires a 3.0 GPA.", string(body))

	_, err = src.Open(context.Background(), "raw/missing.txt")
	assert.Error(t, err)
}

func TestObjectSource_FixedKeys(t *testing.T) {
	src := &ObjectSource{store: fakeObjects{}, keys: []string{"raw/a.txt", "raw/b.csv"}}
	keys, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/a.txt", "raw/b.csv"}, keys)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "raw/d41d8cd9/programs.json", ObjectKey("raw", "d41d8cd9", "/tmp/upload/programs.json"))
	assert.Equal(t, "d41d8cd9/programs.json", ObjectKey("", "d41d8cd9", "programs.json"))
}

func TestObjectSource_SourceName(t *testing.T) {
	md5 := "0cc175b9c0f1b6a831c399e269772661"
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{"raw", ObjectKey("raw", md5, "admissions.txt"), "admissions.txt"},
		{"", ObjectKey("raw", md5, "admissions.txt"), "admissions.txt"},
		{"raw/", "raw/grad/deadlines.txt", "grad/deadlines.txt"},
		{"raw/", "raw/undergrad/deadlines.txt", "undergrad/deadlines.txt"},
		{"", "tuition.csv", "tuition.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			src := &ObjectSource{store: fakeObjects{}, prefix: tt.prefix}
			assert.Equal(t, tt.want, src.SourceName(tt.key))
		})
	}
}
