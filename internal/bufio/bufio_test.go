package bufio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)
	defer m.Close()

	c, err := m.Open("deadbeef.index")
	require.NoError(t, err)

	require.NoError(t, c.WriteU32(42))
	require.NoError(t, c.WriteU16(7))
	require.NoError(t, c.WriteF32(0.5))
	require.NoError(t, c.WriteBytes([]byte("hello")))

	c.Seek(0)
	u32, err := c.ReadU32()
	require.NoError(t, err)
	require.EqualValues(t, 42, u32)

	u16, err := c.ReadU16()
	require.NoError(t, err)
	require.EqualValues(t, 7, u16)

	f32, err := c.ReadF32()
	require.NoError(t, err)
	require.EqualValues(t, 0.5, f32)

	b, err := c.ReadBytes(5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
}

func TestShortReadAtEOFIsError(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)
	defer m.Close()

	c, err := m.Open("f.index")
	require.NoError(t, err)
	require.NoError(t, c.WriteU8(1))

	c.Seek(0)
	_, err = c.ReadU64()
	require.Error(t, err)
}

func TestReserveThenPatch(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)
	defer m.Close()

	c, err := m.Open("f.index")
	require.NoError(t, err)

	reserved := c.Reserve(4)
	afterReserve := c.Tell()
	require.NoError(t, c.WriteU32(99)) // append after the reserved gap

	require.NoError(t, c.PatchAt(reserved, []byte{1, 2, 3, 4}))
	require.Equal(t, afterReserve+4, c.Tell(), "patching must not move the running cursor")

	c.Seek(reserved)
	patched, err := c.ReadBytes(4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, patched)
}

func TestDistinctFilesIndependent(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)
	defer m.Close()

	c1, err := m.Open("a.index")
	require.NoError(t, err)
	c2, err := m.Open("b.index")
	require.NoError(t, err)

	require.NoError(t, c1.WriteU32(1))
	require.NoError(t, c2.WriteU32(2))

	c1.Seek(0)
	c2.Seek(0)
	v1, _ := c1.ReadU32()
	v2, _ := c2.ReadU32()
	require.EqualValues(t, 1, v1)
	require.EqualValues(t, 2, v2)
}

func TestSharedCursorsOnSameFileSerialize(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)
	defer m.Close()

	c1, err := m.Open("shared.index")
	require.NoError(t, err)
	c2, err := m.Open("shared.index")
	require.NoError(t, err)

	require.NoError(t, c1.WriteU32(123))
	c2.Seek(0)
	v, err := c2.ReadU32()
	require.NoError(t, err)
	require.EqualValues(t, 123, v)
}
