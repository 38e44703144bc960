package slug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Blue Shirt", "blue-shirt"},
		{"  Blue   Shirt  ", "blue-shirt"},
		{"Café & Co.", "café-co"},
		{"100% Cotton T-Shirt", "100-cotton-tshirt"},
		{"snake_case name", "snake_case-name"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Generate(tc.in), "input %q", tc.in)
	}
}

func TestMakeUnique(t *testing.T) {
	require.Equal(t, "blue-shirt", MakeUnique("blue-shirt", nil))
	require.Equal(t, "blue-shirt-1", MakeUnique("blue-shirt", []string{"blue-shirt"}))
	require.Equal(t, "blue-shirt-2",
		MakeUnique("blue-shirt", []string{"blue-shirt", "blue-shirt-1"}))
	require.Equal(t, "blue-shirt",
		MakeUnique("blue-shirt", []string{"blue-shirt-1", "red-shirt"}))
}
