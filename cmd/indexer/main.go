package main

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/textileio/cli"

	"github.com/chainindex/chainindex/buildinfo"
	"github.com/chainindex/chainindex/internal/chainclient"
	"github.com/chainindex/chainindex/internal/follower"
	"github.com/chainindex/chainindex/internal/indexer"
	"github.com/chainindex/chainindex/internal/kvstore"
	"github.com/chainindex/chainindex/internal/queryservice"
	"github.com/chainindex/chainindex/internal/sharedstate"
	"github.com/chainindex/chainindex/internal/subscription"
	"github.com/chainindex/chainindex/pkg/logging"
	"github.com/chainindex/chainindex/pkg/metrics"
)

type moduleCloser func(ctx context.Context) error

func main() {
	config, dirPath := setupConfig()

	// Logging.
	logging.SetupLogger(buildinfo.GitCommit, config.Log.Debug, config.Log.Human)
	log.Info().Str("git_summary", buildinfo.GetSummary()).Msg("starting chainindex")

	// Instrumentation.
	if err := metrics.SetupInstrumentation(":"+config.Metrics.Port, "chainindex:indexer"); err != nil {
		log.Fatal().Err(err).Str("port", config.Metrics.Port).Msg("could not setup instrumentation")
	}

	// Secondary-index store.
	store, err := kvstore.Open(path.Join(dirPath, "index.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("opening the index store")
	}

	// Upstream node connection.
	dialCtx, dialCls := context.WithTimeout(context.Background(), time.Second*15)
	defer dialCls()
	client, err := chainclient.Dial(dialCtx, config.URL)
	if err != nil {
		log.Fatal().Err(err).Str("url", config.URL).Msg("connecting to the node")
	}

	// Subscription fan-out.
	mux := subscription.New()
	muxCtx, muxCancel := context.WithCancel(context.Background())
	muxDone := make(chan struct{})
	go func() {
		mux.Run(muxCtx)
		close(muxDone)
	}()

	// Indexing stack.
	state := sharedstate.New()
	ix, err := createIndexingStack(config, client, state, store, mux)
	if err != nil {
		log.Fatal().Err(err).Msg("creating indexing stack")
	}

	// Query/subscription server.
	closeQueryServer, err := createQueryServer(config.QueryService, store, mux)
	if err != nil {
		log.Fatal().Err(err).Msg("creating query server")
	}

	cli.HandleInterrupt(func() {
		// Close query server.
		ctx, cls := context.WithTimeout(context.Background(), time.Second*10)
		defer cls()
		if err := closeQueryServer(ctx); err != nil {
			log.Error().Err(err).Msg("shutting down query server")
		}

		// Close indexing; finishes the in-flight block first.
		ix.StopSync()

		// Close the subscription fan-out.
		muxCancel()
		<-muxDone

		// Close the node connection.
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("closing node connection")
		}

		// Close the store.
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("closing index store")
		}
	})
}

func createIndexingStack(
	config *config,
	client *chainclient.Client,
	state *sharedstate.SharedState,
	store *kvstore.Store,
	mux *subscription.Multiplexer,
) (*indexer.Indexer, error) {
	chainAPIBackoff, err := time.ParseDuration(config.Follower.ChainAPIBackoff)
	if err != nil {
		return nil, fmt.Errorf("parsing chain api backoff duration: %s", err)
	}
	headPollFreq, err := time.ParseDuration(config.Follower.HeadPollFreq)
	if err != nil {
		return nil, fmt.Errorf("parsing head poll frequency duration: %s", err)
	}
	fol, err := follower.New(
		client,
		state,
		follower.WithMinBlockDepth(config.Follower.MinBlockDepth),
		follower.WithMaxBlocksFetchSize(config.Follower.MaxBlocksFetchSize),
		follower.WithChainAPIBackoff(chainAPIBackoff),
		follower.WithHeadPollFreq(headPollFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("creating follower: %s", err)
	}

	blockFailedExecutionBackoff, err := time.ParseDuration(config.Indexer.BlockFailedExecutionBackoff)
	if err != nil {
		return nil, fmt.Errorf("parsing block failed execution backoff duration: %s", err)
	}
	ix, err := indexer.New(
		store,
		mux,
		fol,
		state,
		indexer.WithStartHeight(config.BlockHeight),
		indexer.WithBlockFailedExecutionBackoff(blockFailedExecutionBackoff),
		indexer.WithCaughtUpDepth(config.Indexer.CaughtUpDepth),
	)
	if err != nil {
		return nil, fmt.Errorf("creating indexer: %s", err)
	}
	if err := ix.StartSync(); err != nil {
		return nil, fmt.Errorf("starting indexer: %s", err)
	}
	return ix, nil
}

func createQueryServer(
	config QueryServiceConfig,
	store *kvstore.Store,
	mux *subscription.Multiplexer,
) (moduleCloser, error) {
	qs, err := queryservice.New(store, mux)
	if err != nil {
		return nil, fmt.Errorf("creating query service: %s", err)
	}

	// No read/write timeouts: the protocol connections are long-lived
	// WebSockets that may legitimately sit idle between pushes.
	server := &http.Server{
		Addr:    ":" + config.Port,
		Handler: qs.Handler(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info().Msg("query server gracefully closed")
				return
			}
			log.Fatal().Err(err).Str("port", config.Port).Msg("couldn't start query server")
		}
	}()

	closeModule := func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("closing query server")
		}
		return nil
	}

	return closeModule, nil
}
