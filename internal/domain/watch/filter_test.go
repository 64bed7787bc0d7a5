package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterRelevant(t *testing.T) {
	f := NewFilter(nil)

	tests := []struct {
		path     string
		relevant bool
	}{
		{"index.tsx", true},
		{"components/button.ts", true},
		{"screens/home/view.jsx", true},
		{"lib/util.js", true},

		// Wrong extension
		{"README.md", false},
		{"assets/logo.png", false},
		{"package.json", false},

		// Test/spec markers
		{"components/button.test.ts", false},
		{"lib/util.spec.js", false},
		{"__tests__/app.ts", false},

		// Dependency caches and VCS
		{"node_modules/react/index.js", false},
		{"sub/node_modules/x/y.ts", false},
		{".git/hooks/pre-commit.js", false},

		// Dotfiles and OS metadata
		{".eslintrc.js", false},
		{".DS_Store", false},
		{"assets/Thumbs.db", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.relevant, f.Relevant(tt.path))
		})
	}
}

func TestFilterExtraGlobs(t *testing.T) {
	f := NewFilter([]string{"generated/**", "**/*.gen.ts"})

	assert.False(t, f.Relevant("generated/api.ts"))
	assert.False(t, f.Relevant("src/client.gen.ts"))
	assert.True(t, f.Relevant("src/client.ts"))
}
