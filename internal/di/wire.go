//go:build wireinject
// +build wireinject

package di

import (
	"PulseTrade/pkg/config"
	"PulseTrade/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Market data
		ProvideStore,
		ProvideStream,

		// Signal pipeline
		ProvideScanner,
		ProvideCalculator,
		ProvideValidator,
		ProvideVolumeFilter,

		// Risk and brokerage
		ProvideRateBudget,
		ProvideRiskController,
		ProvideBroker,
		ProvideAccountCache,

		// Events and persistence
		ProvideKafkaProducer,
		ProvideRecorder,
		ProvideEventSink,
		ProvideClickHouseClient,
		ProvideJournal,

		// Lifecycle
		ProvideManager,
		ProvideEngine,

		// Transport
		ProvideTicksHandler,
		ProvideKafkaConsumer,
		ProvideStatusHandler,

		ProvideApp,
	)
	return &server.App{}, nil
}
