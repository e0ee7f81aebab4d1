package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetargetSymlink(t *testing.T) {
	cases := []struct {
		name            string
		target          string
		sourceDir       string
		targetIsRegular bool
		compress        bool
		encrypt         bool
		packaged        bool
		want            string
	}{
		{
			name:      "absolute under source, plain copy",
			target:    "/src/f.txt",
			sourceDir: "/src", targetIsRegular: true,
			want: "f.txt",
		},
		{
			name:      "absolute under source, compressed",
			target:    "/src/f.txt",
			sourceDir: "/src", targetIsRegular: true, compress: true,
			want: "f.txt.huff",
		},
		{
			name:      "absolute under source, compressed and encrypted",
			target:    "/src/f.txt",
			sourceDir: "/src", targetIsRegular: true, compress: true, encrypt: true,
			want: "f.txt.huff.enc",
		},
		{
			name:      "packaged backups do not add .enc",
			target:    "/src/f.txt",
			sourceDir: "/src", targetIsRegular: true, compress: true, encrypt: true, packaged: true,
			want: "f.txt.huff",
		},
		{
			name:      "absolute directory target under source gets no suffixes",
			target:    "/src/sub",
			sourceDir: "/src", targetIsRegular: false, compress: true, encrypt: true,
			want: "sub",
		},
		{
			name:      "absolute outside source stays verbatim",
			target:    "/etc/hosts",
			sourceDir: "/src", targetIsRegular: true, compress: true, encrypt: true,
			want: "/etc/hosts",
		},
		{
			name:      "relative sibling regular",
			target:    "f.txt",
			sourceDir: "/src", targetIsRegular: true, compress: true, encrypt: true,
			want: "f.txt.huff.enc",
		},
		{
			name:      "relative with subdirectory stays verbatim",
			target:    "sub/f.txt",
			sourceDir: "/src", targetIsRegular: true, compress: true, encrypt: true,
			want: "sub/f.txt",
		},
		{
			name:      "relative non-regular stays verbatim",
			target:    "otherlink",
			sourceDir: "/src", targetIsRegular: false, compress: true, encrypt: true,
			want: "otherlink",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RetargetSymlink(tc.target, tc.sourceDir, tc.targetIsRegular, tc.compress, tc.encrypt, tc.packaged)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStripBackupSuffixes(t *testing.T) {
	assert.Equal(t, "f.txt", StripBackupSuffixes("f.txt.huff.enc"))
	assert.Equal(t, "f.txt", StripBackupSuffixes("f.txt.huff"))
	assert.Equal(t, "f.txt", StripBackupSuffixes("f.txt.enc"))
	assert.Equal(t, "f.txt", StripBackupSuffixes("f.txt"))
	assert.Equal(t, "sub/f.txt", StripBackupSuffixes("sub/f.txt.huff.enc"))
}

func TestRetargetStripRoundTrip(t *testing.T) {
	// The restore side recovers the original name for every transform
	// combination applied to an in-tree regular target.
	original := "f.txt"
	for _, compress := range []bool{false, true} {
		for _, encrypt := range []bool{false, true} {
			for _, packaged := range []bool{false, true} {
				rewritten := RetargetSymlink("/src/"+original, "/src", true, compress, encrypt, packaged)
				assert.Equal(t, original, StripBackupSuffixes(rewritten))
			}
		}
	}
}
