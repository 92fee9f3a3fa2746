package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/bumper/internal/device"
	"github.com/nerrad567/bumper/internal/relay"
)

// Measurement names.
const (
	measurementRelay = "relay"
	measurementBots  = "bots"
)

// RelayCompleted implements relay.Observer by writing one point per
// finished command. Commands with no target did (validation failures) are
// skipped.
func (c *Client) RelayCompleted(done relay.Completion) {
	if !c.IsConnected() || done.DID == "" {
		return
	}
	c.writeAPI.WritePoint(relayPoint(done, c.now()))
}

// WriteBotStats records a snapshot of the bot catalogue.
//
// Example:
//
//	client.WriteBotStats(registry.GetStats())
func (c *Client) WriteBotStats(stats device.Stats) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(botStatsPoint(stats, c.now()))
}

func relayPoint(done relay.Completion, at time.Time) *write.Point {
	return write.NewPoint(
		measurementRelay,
		map[string]string{
			"did":     done.DID,
			"command": done.CmdName,
			"outcome": done.Outcome,
		},
		map[string]interface{}{
			"latency_ms":     float64(done.Latency) / float64(time.Millisecond),
			"correlation_id": done.CorrelationID,
		},
		at,
	)
}

func botStatsPoint(stats device.Stats, at time.Time) *write.Point {
	return write.NewPoint(
		measurementBots,
		map[string]string{},
		map[string]interface{}{
			"total":              stats.Total,
			"bus_connected":      stats.BusConnected,
			"presence_connected": stats.PresenceConnected,
		},
		at,
	)
}
