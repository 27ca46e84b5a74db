package emailsvc

import "github.com/trezcool/peerly/core"

// Backends
const (
	BackendConsole  = "console"
	BackendSendgrid = "sendgrid"
	BackendSMTP     = "smtp"
)

// NewService returns the EmailService configured by conf.Email.Backend (console by default).
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.Email.Backend {
	case BackendSendgrid:
		return NewSendgridService(conf, logger)
	case BackendSMTP:
		return NewSMTPService(conf, logger)
	default:
		return NewConsoleService(conf, logger)
	}
}
