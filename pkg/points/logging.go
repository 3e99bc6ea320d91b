package points

import "context"

// ServiceOption configures the points services.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger        OperationLogger
	invoiceLookup InvoiceStore
	appURL        string
}

// OperationLogger records domain-level events emitted by service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one claim, invoice, or payment operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	ChargeID  ChargeID
	InvoiceID InvoiceID
	Amount    PointsAmount
	Price     StarsPrice
	Status    string
	Detail    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(options *serviceOptions) {
		options.logger = logger
	}
}

// WithInvoiceLookup lets the payment processor cross-check settlements against pending invoices.
func WithInvoiceLookup(invoices InvoiceStore) ServiceOption {
	return func(options *serviceOptions) {
		options.invoiceLookup = invoices
	}
}

// WithAppURL sets the web app opened by the /start button.
func WithAppURL(appURL string) ServiceOption {
	return func(options *serviceOptions) {
		options.appURL = appURL
	}
}

func applyOptions(options []ServiceOption) serviceOptions {
	var resolved serviceOptions
	for _, option := range options {
		if option != nil {
			option(&resolved)
		}
	}
	return resolved
}

func logOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
