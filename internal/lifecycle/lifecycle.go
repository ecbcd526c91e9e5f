// Package lifecycle sequences startup and shutdown for the recognition
// service: descriptor store, embedder warmup, vector index (with bulk
// load when empty), metrics priming, then traffic; and the reverse order
// on shutdown. Grounded on cmd/serve.go's runServe — the teacher wires
// Postgres, builds/loads the HNSW indexes, and installs a SIGTERM/SIGINT
// handler that saves indexes before calling server.Shutdown; this package
// generalizes that same sequence behind explicit, injected components
// instead of the teacher's package-level Postgres/database globals.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/facerecog/internal/cache"
	"github.com/kozaktomas/facerecog/internal/embedder"
	"github.com/kozaktomas/facerecog/internal/index"
	"github.com/kozaktomas/facerecog/internal/metrics"
	"github.com/kozaktomas/facerecog/internal/store"
)

// ModelLoadTimeout bounds embedder.Warmup at startup, per the spec.
const ModelLoadTimeout = 60 * time.Second

// ShutdownTimeout bounds the drain-and-persist sequence on termination.
const ShutdownTimeout = 30 * time.Second

// Deps bundles the components lifecycle sequences. Start requires Embedder
// and Index; it uses Store only when the index comes up empty or Metrics is
// set. Pool, Metrics and Server may be nil, and Shutdown skips every nil
// field.
type Deps struct {
	Pool     *store.Pool
	Store    *store.Store
	Embedder embedder.Client
	Index    *index.Index
	Cache    cache.Cache
	Metrics  *metrics.Recorder
	Server   *http.Server
}

// Start runs the spec's startup order: store → embedder warmup → index
// (bulk-loading from the store if the index came up empty) → prime
// metrics gauges. It does not start accepting traffic; the caller does
// that by calling Server.ListenAndServe once Start returns nil.
func Start(ctx context.Context, d Deps) error {
	fmt.Println("lifecycle: initializing descriptor store")
	if d.Pool != nil {
		if err := d.Pool.Migrate(ctx); err != nil {
			return fmt.Errorf("lifecycle: migrating descriptor store: %w", err)
		}
	}

	fmt.Println("lifecycle: warming up embedder")
	warmupCtx, cancel := context.WithTimeout(ctx, ModelLoadTimeout)
	defer cancel()
	if err := d.Embedder.Warmup(warmupCtx); err != nil {
		return fmt.Errorf("lifecycle: embedder warmup: %w", err)
	}

	fmt.Println("lifecycle: initializing vector index")
	if err := d.Index.Init(); err != nil {
		return fmt.Errorf("lifecycle: index init: %w", err)
	}

	if d.Index.Size() == 0 {
		if err := bulkLoad(ctx, d.Store, d.Index); err != nil {
			fmt.Printf("lifecycle: bulk load failed, starting with empty index: %v\n", err)
		}
	}

	if d.Metrics != nil {
		d.Metrics.SetHNSWIndexSize(d.Index.Size())
		if count, err := d.Store.CountActive(ctx); err == nil {
			d.Metrics.SetActiveUsers(count)
		}
	}

	fmt.Println("lifecycle: ready to accept traffic")
	return nil
}

func bulkLoad(ctx context.Context, st *store.Store, idx *index.Index) error {
	users, err := st.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}
	inputs := make([]index.RebuildInput, 0, len(users))
	for _, u := range users {
		inputs = append(inputs, index.RebuildInput{
			UserID:      u.UserID,
			ExternalID:  u.ExternalID,
			DisplayName: u.DisplayName,
			ClientRef:   u.ClientRef,
			Descriptor:  u.Descriptor,
		})
	}
	fmt.Printf("lifecycle: bulk-loading %d active users into empty index\n", len(inputs))
	return idx.Rebuild(inputs)
}

// WaitForSignal blocks until SIGINT/SIGTERM, then runs Shutdown and
// returns. cmd/serve.go runs it in its own goroutine while the HTTP server
// listens, and waits for it to return before exiting.
func WaitForSignal(ctx context.Context, d Deps) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("lifecycle: shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()
	Shutdown(shutdownCtx, d)
}

// Shutdown stops accepting new requests, drains in-flight ones, persists
// the index, and closes the cache and store in that order.
func Shutdown(ctx context.Context, d Deps) {
	if d.Server != nil {
		if err := d.Server.Shutdown(ctx); err != nil {
			fmt.Printf("lifecycle: error draining HTTP server: %v\n", err)
		}
	}

	if d.Index != nil {
		if err := d.Index.Save(); err != nil {
			fmt.Printf("lifecycle: error persisting index: %v\n", err)
		} else {
			fmt.Println("lifecycle: index persisted")
		}
	}

	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			fmt.Printf("lifecycle: error closing cache: %v\n", err)
		}
	}

	if d.Pool != nil {
		if err := d.Pool.Close(); err != nil {
			fmt.Printf("lifecycle: error closing descriptor store: %v\n", err)
		}
	}

	fmt.Println("lifecycle: shutdown complete")
}
