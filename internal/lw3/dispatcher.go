package lw3

import (
	"errors"
	"regexp"
	"sync"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"go.uber.org/zap"
)

// errNoChange tells the dispatcher a matched line left the model as it was.
var errNoChange = errors.New("no change")

// Handler applies a matched line to local state. match is the result of
// FindStringSubmatch. It reports whether the choice set changed.
type Handler func(match []string) (structural bool, err error)

// Subscription binds a line pattern to a state update.
type Subscription struct {
	Name    string
	Pattern *regexp.Regexp
	Handler Handler
	// Signal is emitted whenever the handler succeeds. Empty for none.
	Signal matrix.ChangeKind
}

// Dispatcher routes unsolicited messages to subscriptions. Every matching
// subscription fires, in table order.
type Dispatcher struct {
	subs   []Subscription
	logger *zap.Logger

	listenersMu sync.RWMutex
	listeners   []matrix.ChangeListener
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Subscribe appends to the table. Not safe while messages are being routed.
func (d *Dispatcher) Subscribe(subs ...Subscription) {
	d.subs = append(d.subs, subs...)
}

// OnChange registers a change listener.
func (d *Dispatcher) OnChange(l matrix.ChangeListener) {
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, l)
	d.listenersMu.Unlock()
}

// Notify fans a change out to the listeners.
func (d *Dispatcher) Notify(kind matrix.ChangeKind) {
	d.listenersMu.RLock()
	listeners := d.listeners
	d.listenersMu.RUnlock()

	for _, l := range listeners {
		l(kind)
	}
}

// Route offers every line of msg to the subscription table and emits the
// resulting change signals once. It reports whether anything matched.
func (d *Dispatcher) Route(msg Message) bool {
	signals := make(map[matrix.ChangeKind]bool)
	matched := false

	for _, line := range msg.Lines() {
		if d.routeLine(line, signals) {
			matched = true
		}
	}
	d.emit(signals)

	if !matched {
		if msg.Kind == MessageBlock {
			d.logger.Warn("Unsolicited block matched no subscription",
				zap.String("txid", msg.ID),
				zap.String("body", msg.Body))
		} else {
			d.logger.Debug("Unhandled line", zap.String("line", msg.Body))
		}
	}
	return matched
}

// RouteLine routes a single line, used by discovery callbacks that feed
// listings through the same handlers as pushed events.
func (d *Dispatcher) RouteLine(line string) bool {
	signals := make(map[matrix.ChangeKind]bool)
	matched := d.routeLine(line, signals)
	d.emit(signals)
	return matched
}

func (d *Dispatcher) routeLine(line string, signals map[matrix.ChangeKind]bool) bool {
	matched := false
	for _, sub := range d.subs {
		match := sub.Pattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		matched = true

		structural, err := sub.Handler(match)
		if errors.Is(err, errNoChange) {
			d.logger.Debug("Line left model unchanged",
				zap.String("subscription", sub.Name),
				zap.String("line", line))
			continue
		}
		if err != nil {
			d.logger.Warn("Subscription handler rejected payload",
				zap.String("subscription", sub.Name),
				zap.Error(err))
			continue
		}
		if sub.Signal != "" {
			signals[sub.Signal] = true
		}
		if structural {
			signals[matrix.ChangeStructural] = true
		}
	}
	return matched
}

func (d *Dispatcher) emit(signals map[matrix.ChangeKind]bool) {
	// fixed order so listeners see routing before structural rebuilds
	for _, kind := range []matrix.ChangeKind{matrix.ChangeRouting, matrix.ChangeNaming, matrix.ChangeStructural} {
		if signals[kind] {
			d.Notify(kind)
		}
	}
}
