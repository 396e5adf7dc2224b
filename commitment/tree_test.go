package commitment

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomShards(rng *rand.Rand, count, size int) [][]byte {
	shards := make([][]byte, count)
	for i := range shards {
		shards[i] = make([]byte, size)
		rng.Read(shards[i])
	}
	return shards
}

// go test -run TestEveryLeafVerifies -v
func TestEveryLeafVerifies(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, hasher := range []Hasher{SHA256, BLAKE3} {
		for _, count := range []int{1, 2, 3, 5, 7, 8, 13, 160, 255} {
			shards := randomShards(rng, count, 16)
			tree, err := Build(shards, hasher)
			if err != nil {
				t.Fatalf("Unexpected error when building a tree of %d leaves: %s", count, err)
			}
			for i, shard := range shards {
				path, err := tree.Path(i)
				require.NoError(t, err)
				assert.True(t, Verify(hasher, LeafDigest(hasher, shard), path, tree.Root()),
					"%s: leaf %d of %d must verify", hasher.Name, i, count)
			}
		}
	}
}

func TestSingleLeafRootIsLeaf(t *testing.T) {
	tree, err := Build([][]byte{[]byte("only")}, SHA256)
	require.NoError(t, err)
	assert.Equal(t, LeafDigest(SHA256, []byte("only")), tree.Root())

	path, err := tree.Path(0)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestOddLevelDuplicatesLastNode(t *testing.T) {
	shards := [][]byte{{1}, {2}, {3}}
	tree, err := Build(shards, SHA256)
	require.NoError(t, err)

	h := SHA256.New()
	l0, l1, l2 := LeafDigest(SHA256, shards[0]), LeafDigest(SHA256, shards[1]), LeafDigest(SHA256, shards[2])
	want := combine(h, combine(h, l0, l1), combine(h, l2, l2))
	assert.Equal(t, want, tree.Root())
}

func TestRootIsDeterministic(t *testing.T) {
	shards := make([][]byte, 160)
	for i := range shards {
		shards[i] = make([]byte, 1024)
	}
	first, err := Build(shards, SHA256)
	require.NoError(t, err)
	second, err := Build(shards, SHA256)
	require.NoError(t, err)
	assert.Equal(t, first.Root(), second.Root())

	other, err := Build(shards, BLAKE3)
	require.NoError(t, err)
	assert.NotEqual(t, first.Root(), other.Root(), "the primitive is part of the commitment")
}

func TestTamperingIsDetected(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	shards := randomShards(rng, 10, 32)
	tree, err := Build(shards, SHA256)
	require.NoError(t, err)

	path, err := tree.Path(4)
	require.NoError(t, err)

	tampered := append([]byte(nil), shards[4]...)
	tampered[0] ^= 1
	assert.False(t, Verify(SHA256, LeafDigest(SHA256, tampered), path, tree.Root()))

	// a valid leaf against another leaf's path
	assert.False(t, Verify(SHA256, LeafDigest(SHA256, shards[5]), path, tree.Root()))

	// flipping a sibling side
	flipped := append([]PathNode(nil), path...)
	flipped[0].Side = Left
	assert.False(t, Verify(SHA256, LeafDigest(SHA256, shards[4]), flipped, tree.Root()))

	// a leaf digest is never accepted as an interior node
	twoLeaf, err := Build([][]byte{{1}, {2}}, SHA256)
	require.NoError(t, err)
	assert.NotEqual(t, twoLeaf.Root(), LeafDigest(SHA256, append(twoLeaf.Leaves()[0][:], twoLeaf.Leaves()[1][:]...)))
}

func TestBuildAndPathErrors(t *testing.T) {
	_, err := Build(nil, SHA256)
	assert.Error(t, err)

	_, err = Build([][]byte{{1}}, Hasher{Name: "none"})
	assert.Error(t, err)

	tree, err := Build([][]byte{{1}, {2}}, SHA256)
	require.NoError(t, err)
	_, err = tree.Path(2)
	assert.Error(t, err)
	_, err = tree.Path(-1)
	assert.Error(t, err)
}

func TestDigestHexRoundTrip(t *testing.T) {
	tree, err := Build([][]byte{[]byte("abc")}, SHA256)
	require.NoError(t, err)
	root := tree.Root()

	parsed, err := ParseDigest(root.String())
	require.NoError(t, err)
	assert.Equal(t, root, parsed)

	parsed, err = ParseDigest("0x" + root.String())
	require.NoError(t, err)
	assert.Equal(t, root, parsed)

	_, err = ParseDigest("abcd")
	assert.Error(t, err)
	_, err = ParseDigest("zz")
	assert.Error(t, err)
}

func TestHasherByName(t *testing.T) {
	h, err := HasherByName("")
	require.NoError(t, err)
	assert.Equal(t, "sha256", h.Name)

	h, err = HasherByName("blake3")
	require.NoError(t, err)
	assert.Equal(t, "blake3", h.Name)

	_, err = HasherByName("md5")
	assert.Error(t, err)
}
