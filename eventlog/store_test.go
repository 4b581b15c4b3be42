package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"liquidstake/core/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecentFiltersAndOrders(t *testing.T) {
	store := openTestStore(t)
	var account [20]byte
	account[19] = 1

	store.Emit(events.StakeAdded{Height: 3, Account: account, Amount: uint256.NewInt(10), Minted: uint256.NewInt(10)})
	store.Emit(events.VotingWindowOpened{Height: 4, Era: 2, StartBlock: 4, EndBlock: 8})
	store.Emit(events.StakeAdded{Height: 5, Account: account, Amount: uint256.NewInt(4), Minted: uint256.NewInt(3)})

	all, err := store.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(3), all[0].Seq)
	require.Equal(t, uint64(5), all[0].Height)

	stakes, err := store.Recent(context.Background(), events.TypeStakeAdded, 1)
	require.NoError(t, err)
	require.Len(t, stakes, 1)
	require.Equal(t, "3", stakes[0].Attributes["minted"])

	since, err := store.SinceHeight(context.Background(), 4, 10)
	require.NoError(t, err)
	require.Len(t, since, 2)
	require.Equal(t, events.TypeVotingWindowOpened, since[0].Type)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := Open(path, nil)
	require.NoError(t, err)
	store.Emit(events.QuorumNotReached{Height: 1, Era: 1, TotalVotes: uint256.NewInt(1), Required: uint256.NewInt(2)})
	require.NoError(t, store.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	reopened.Emit(events.QuorumNotReached{Height: 2, Era: 2, TotalVotes: uint256.NewInt(1), Required: uint256.NewInt(2)})

	records, err := reopened.Recent(context.Background(), events.TypeQuorumNotReached, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(2), records[0].Seq)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", nil)
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestExportParquet(t *testing.T) {
	store := openTestStore(t)
	var account [20]byte
	account[19] = 7
	store.Emit(events.StakeAdded{Height: 2, Account: account, Amount: uint256.NewInt(9), Minted: uint256.NewInt(9)})
	store.Emit(events.VotingWindowOpened{Height: 4, Era: 1, StartBlock: 4, EndBlock: 6})
	store.Emit(events.StakeAdded{Height: 5, Account: account, Amount: uint256.NewInt(3), Minted: uint256.NewInt(2)})

	var out bytes.Buffer
	n, err := store.ExportParquet(context.Background(), &out, 4)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(out.Bytes()), new(parquetEvent), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(2), pr.GetNumRows())
	rows := make([]parquetEvent, 2)
	require.NoError(t, pr.Read(&rows))

	require.Equal(t, events.TypeVotingWindowOpened, rows[0].Type)
	require.Equal(t, int64(2), rows[0].Seq)
	require.Equal(t, events.TypeStakeAdded, rows[1].Type)
	require.Equal(t, int64(5), rows[1].Height)
	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(rows[1].Attributes), &attrs))
	require.Equal(t, "2", attrs["minted"])
}
