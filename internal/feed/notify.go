package feed

import (
	"github.com/sirupsen/logrus"
)

// Notifier is the advisory alert sink. Delivery semantics are owned by the
// implementation; the core never performs direct output.
type Notifier interface {
	NotifyArbitrage(op ArbitrageOpportunity)
	NotifyLatency(an LatencyAnomaly)
	NotifyShutdownAnomaly(src SourceID)
}

// LogNotifier writes advisory events to the structured log.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithField("component", "notify")}
}

func (n *LogNotifier) NotifyArbitrage(op ArbitrageOpportunity) {
	n.log.WithFields(logrus.Fields{
		"id":          op.ID,
		"buy_source":  op.BuySource,
		"sell_source": op.SellSource,
		"buy_price":   op.BuyPrice,
		"sell_price":  op.SellPrice,
		"profit":      op.Profit,
	}).Info("arbitrage opportunity")
}

func (n *LogNotifier) NotifyLatency(an LatencyAnomaly) {
	n.log.WithFields(logrus.Fields{
		"id":     an.ID,
		"source": an.Source,
		"sample": an.Sample.String(),
		"mean":   an.Mean.String(),
	}).Warn("latency spike")
}

func (n *LogNotifier) NotifyShutdownAnomaly(src SourceID) {
	n.log.WithField("source", src).Warn("adapter did not exit within shutdown grace period")
}
