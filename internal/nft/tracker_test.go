package nft

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

var (
	collection = common.HexToAddress("0x000000000000000000000000000000000000f721")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol      = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

type fakeURIs struct {
	mu    sync.Mutex
	uris  map[string]string
	fail  map[string]bool
	calls int
}

func (f *fakeURIs) GetTokenURI(_ context.Context, _ common.Address, tokenID *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[tokenID.String()] {
		return "", errors.New("execution reverted")
	}
	return f.uris[tokenID.String()], nil
}

type fakeMetadata struct {
	docs map[string]*Metadata
}

func (f fakeMetadata) Fetch(_ context.Context, uri string) (*Metadata, error) {
	md, ok := f.docs[uri]
	if !ok {
		return nil, fmt.Errorf("not found: %s", uri)
	}
	return md, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nftTransfer(block uint64, to common.Address, tokenID string, ts int64) *chain.Transfer {
	return &chain.Transfer{
		BlockNumber:  block,
		To:           to,
		TokenAddress: collection,
		TokenType:    chain.TokenTypeERC721,
		Timestamp:    time.Unix(ts, 0),
		Fields:       map[string]string{"tokenId": tokenID},
	}
}

func TestTrackKeepsLatestTimestamp(t *testing.T) {
	tr := NewTracker(&fakeURIs{}, nil, 0, quietLogger())
	tr.Track([]*chain.Transfer{
		nftTransfer(5, alice, "1", 200),
		nftTransfer(5, bob, "1", 100),
		{BlockNumber: 5, To: carol, TokenAddress: collection, TokenType: chain.TokenTypeERC20},
	})
	tr.Track([]*chain.Transfer{nftTransfer(5, carol, "1", 150)})

	items := tr.Resolve(context.Background(), 5)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	if items[0].Owner != alice {
		t.Fatalf("owner %s, want %s", items[0].Owner.Hex(), alice.Hex())
	}
}

func TestResolveEnrichesMetadata(t *testing.T) {
	uris := &fakeURIs{
		uris: map[string]string{"1": "ipfs://meta/1", "2": "https://meta/2", "3": "https://meta/3"},
		fail: map[string]bool{"4": true},
	}
	md := fakeMetadata{docs: map[string]*Metadata{
		"ipfs://meta/1":  {Name: "One", Description: "first", Image: "https://img/1"},
		"https://meta/2": {Name: "Two"},
	}}
	tr := NewTracker(uris, md, 2, quietLogger())
	tr.Track([]*chain.Transfer{
		nftTransfer(9, alice, "1", 1),
		nftTransfer(9, bob, "2", 1),
		nftTransfer(9, carol, "3", 1),
		nftTransfer(9, alice, "4", 1),
	})

	items := tr.Resolve(context.Background(), 9)
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].Name != "One" || items[0].ImageURL != "https://img/1" || items[0].MetadataURL != "ipfs://meta/1" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Name != "Two" {
		t.Fatalf("unexpected second item %+v", items[1])
	}
	if items[2].MetadataURL != "https://meta/3" || items[2].Name != "" {
		t.Fatalf("metadata failure must keep a partial item, got %+v", items[2])
	}
	if items[3].MetadataURL != "" || items[3].Owner != alice {
		t.Fatalf("uri failure must keep a partial item, got %+v", items[3])
	}
}

func TestResolveUntrackedBlock(t *testing.T) {
	uris := &fakeURIs{}
	tr := NewTracker(uris, nil, 0, quietLogger())
	if items := tr.Resolve(context.Background(), 1); len(items) != 0 || uris.calls != 0 {
		t.Fatalf("expected no work, got %d items and %d calls", len(items), uris.calls)
	}
}

func TestClear(t *testing.T) {
	tr := NewTracker(&fakeURIs{}, nil, 0, quietLogger())
	tr.Track([]*chain.Transfer{nftTransfer(2, alice, "1", 1)})
	tr.Clear(2)
	if tr.Pending() != 0 {
		t.Fatalf("expected no pending blocks")
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipfs/doc":
			fmt.Fprint(w, `{"name":"Punk","description":"d","image":"ipfs://img"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/ipfs/", time.Second)
	md, err := f.Fetch(context.Background(), "ipfs://doc")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if md.Name != "Punk" || md.Image != srv.URL+"/ipfs/img" {
		t.Fatalf("unexpected metadata %+v", md)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected error for missing document")
	}
}
