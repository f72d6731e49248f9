package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ogdch/harvester/internal"
	"github.com/ogdch/harvester/internal/diff"
	"github.com/ogdch/harvester/internal/harvester"
	"github.com/ogdch/harvester/internal/hub"
	"github.com/ogdch/harvester/internal/i14y"
	"github.com/ogdch/harvester/internal/local"
	"github.com/ogdch/harvester/internal/payload"
	"github.com/ogdch/harvester/internal/s3"
	"github.com/ogdch/harvester/internal/state"
	"github.com/ogdch/harvester/internal/structure"
)

// InitializeClient builds the partner API client shared by the
// harvester and the structure importer.
func InitializeClient(c *Harvester, logger *zap.Logger) *i14y.Client {
	return i14y.New(
		c.Job.Destination.URL,
		c.Job.Destination.TokenURL,
		c.Job.Destination.ClientID,
		c.Job.Destination.ClientSecret,
		c.Job.Destination.Organization,
		i14y.WithLogger(logger),
	)
}

// InitializeRepository builds the artifact repository. The harvester
// keys every artifact by run id, so both writers produce one directory
// per run.
func InitializeRepository(c *Harvester, logger *zap.Logger) (internal.Repository, error) {
	switch c.Job.Reports.Type {
	case "", "local":
		base := c.Job.Reports.LocalConfig.Path
		if base == "" {
			base = "./reports"
		}
		return local.New(
			base,
			local.WithLogger(logger),
		), nil
	case "s3":
		return s3.New(
			s3.WithLogger(logger),
			s3.WithRegion(c.Job.Reports.S3Config.Region),
			s3.WithBucket(c.Job.Reports.S3Config.Bucket),
			s3.WithEndpoint(c.Job.Reports.S3Config.Endpoint),
			s3.WithPrefix(c.Job.Reports.S3Config.Prefix),
			s3.WithForcePathStyle(c.Job.Reports.S3Config.ForcePathStyle),
		), nil
	default:
		return nil, fmt.Errorf("unknown reports type: %s", c.Job.Reports.Type)
	}
}

// InitializeHarvester wires one harvest run from config.
func InitializeHarvester(c *Harvester, client *i14y.Client, logger *zap.Logger) (*harvester.Harvester, error) {
	repository, err := InitializeRepository(c, logger)
	if err != nil {
		return nil, err
	}

	var sourceOpts []hub.Option
	sourceOpts = append(sourceOpts, hub.WithLogger(logger))
	if c.Job.Source.PageSize > 0 {
		sourceOpts = append(sourceOpts, hub.WithPageSize(c.Job.Source.PageSize))
	}
	source := hub.New(c.Job.Source.URL, sourceOpts...)

	store := state.NewStore(
		c.Job.State.Path,
		state.WithLogger(logger),
	)

	engine := diff.New(
		payload.NewBuilder(
			c.Job.Destination.Organization,
			payload.WithLogger(logger),
		),
		diff.WithLogger(logger),
	)

	name := c.Job.Name
	if name == "" {
		name = "bfs"
	}

	return harvester.New(
		source,
		client,
		store,
		engine,
		harvester.WithLogger(logger),
		harvester.WithReports(repository),
		harvester.WithSourceName(name),
	), nil
}

// InitializeStructureImporter wires the structure importer from config.
func InitializeStructureImporter(c *Harvester, client *i14y.Client, logger *zap.Logger) *structure.Importer {
	opts := []structure.Option{
		structure.WithLogger(logger),
	}
	if c.Job.Structures.RatePerSecond > 0 {
		opts = append(opts, structure.WithRateLimit(c.Job.Structures.RatePerSecond))
	}
	return structure.New(client, opts...)
}
