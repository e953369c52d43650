package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"1.2.3", "1.2.3"},
		{"v1.2.3", "1.2.3"},
		{"release/v1.2.6", "1.2.6"},
		{"v2", "2.0.0"},
		{"1.2", "1.2.0"},
		{"1.2.3.4", "1.2.3.4"},
		{"garbage", "0.0.0"},
		{"", "0.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVersion(tt.raw))
		})
	}
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, CompareVersions("1.2.3", "1.2.3"))
	assert.Equal(t, 0, CompareVersions("v1.2.3", "1.2.3"))
	assert.Equal(t, -1, CompareVersions("1.2.3", "1.2.4"))
	assert.Equal(t, 1, CompareVersions("release/v1.2.6", "1.2.3"))
	assert.Equal(t, 0, CompareVersions("1.2", "1.2.0"))
	assert.Equal(t, -1, CompareVersions("1.9.0", "1.10.0"))
	assert.Equal(t, 1, CompareVersions("2", "1.99.99"))
}

func TestCompareVersions_Antisymmetric(t *testing.T) {
	pairs := [][2]string{
		{"1.2.3", "1.2.4"},
		{"v2.0", "1.9.9"},
		{"1.2.3.4", "1.2.3"},
		{"garbage", "0.0.1"},
	}

	for _, p := range pairs {
		assert.Equal(t, CompareVersions(p[0], p[1]), -CompareVersions(p[1], p[0]))
	}
}
