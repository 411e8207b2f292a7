package hiwin_arm

import "go.viam.com/rdk/logging"

// Severity of an operator-visible report.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Notifier receives operator-visible diagnostics.
type Notifier interface {
	Report(text string, severity Severity)
}

type logNotifier struct {
	logger logging.Logger
}

// NewLogNotifier reports through an rdk logger.
func NewLogNotifier(logger logging.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Report(text string, severity Severity) {
	switch severity {
	case SeverityError:
		n.logger.Error(text)
	case SeverityWarn:
		n.logger.Warn(text)
	default:
		n.logger.Info(text)
	}
}
