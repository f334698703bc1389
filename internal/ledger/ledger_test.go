package ledger_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice-engine/internal/ledger"
)

func TestAppend_ChainsEntries(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())

	first, err := l.Append("doc-1", "RE-2024-001", ledger.ActionIssued, []byte("sealed-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, ledger.GenesisHash, first.PrevHash)
	assert.Equal(t, ledger.HashContent([]byte("sealed-1")), first.ContentHash)

	second, err := l.Append("doc-2", "RE-2024-002", ledger.ActionReceived, []byte("sealed-2"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, first.EntryHash, second.PrevHash)
}

func TestVerify_IntactChain(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	for i := 0; i < 25; i++ {
		_, err := l.Append(fmt.Sprintf("doc-%d", i), fmt.Sprintf("RE-2024-%03d", i),
			ledger.ActionIssued, []byte(fmt.Sprintf("content-%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, l.Verify())
}

func TestVerify_DetectsTamperedField(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := ledger.New(store)
	for i := 0; i < 5; i++ {
		_, err := l.Append(fmt.Sprintf("doc-%d", i), "RE-2024-001", ledger.ActionIssued, []byte("x"))
		require.NoError(t, err)
	}

	require.NoError(t, store.Tamper(3, func(e *ledger.Entry) {
		e.InvoiceNumber = "RE-9999-999"
	}))

	err := l.Verify()
	require.Error(t, err)

	var ie *ledger.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.LessOrEqual(t, ie.Seq, uint64(3), "break must be reported at or before the tampered entry")
}

func TestVerify_DetectsTamperedHash(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := ledger.New(store)
	for i := 0; i < 5; i++ {
		_, err := l.Append(fmt.Sprintf("doc-%d", i), "RE-2024-001", ledger.ActionIssued, []byte("x"))
		require.NoError(t, err)
	}

	// Flip one byte of the last entry's stored hash. No later entry links to
	// it, so only the self-hash check can catch this.
	require.NoError(t, store.Tamper(5, func(e *ledger.Entry) {
		b := []byte(e.EntryHash)
		if b[0] == 'a' {
			b[0] = 'b'
		} else {
			b[0] = 'a'
		}
		e.EntryHash = string(b)
	}))

	err := l.Verify()
	var ie *ledger.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, uint64(5), ie.Seq)
}

func TestVerifyContent(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	entry, err := l.Append("doc-1", "RE-2024-001", ledger.ActionIssued, []byte("sealed bytes"))
	require.NoError(t, err)

	require.NoError(t, l.VerifyContent(entry.Seq, []byte("sealed bytes")))

	err = l.VerifyContent(entry.Seq, []byte("sealed bytez"))
	var ie *ledger.IntegrityError
	require.ErrorAs(t, err, &ie)
}

func TestAppend_ConcurrentCallersKeepTotalOrder(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Append(fmt.Sprintf("doc-%d", i), "RE-2024-001", ledger.ActionIssued, []byte{byte(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.NoError(t, l.Verify())

	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestStats(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore())
	_, _ = l.Append("doc-1", "RE-2024-001", ledger.ActionIssued, []byte("a"))
	_, _ = l.Append("doc-2", "RE-2024-002", ledger.ActionIssued, []byte("b"))
	_, _ = l.Append("doc-3", "RE-2024-003", ledger.ActionReceived, []byte("c"))
	_, _ = l.Append("doc-4", "RE-2024-004", ledger.ActionRejected, []byte("d"))

	stats, err := l.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.Total)
	assert.Equal(t, uint64(2), stats.Actions[ledger.ActionIssued])
	assert.Equal(t, uint64(1), stats.Actions[ledger.ActionReceived])
	assert.Equal(t, uint64(1), stats.Actions[ledger.ActionRejected])
}
