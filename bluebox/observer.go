package bluebox

// Observer is notified of dispatcher activity. Callbacks run on the
// dispatching goroutine and must not block.
type Observer interface {
	// RequestHandled is called once per dispatched transaction.
	RequestHandled(tx Transaction, kind Kind, err error)

	// ConfigChanged is called after a field write, with the new mirror state.
	ConfigChanged(field Field, cfg Config)

	// Reprogrammed is called after each transceiver reprogram.
	Reprogrammed(cfg Config, err error)
}

// Observers fans out to several observers in order.
type Observers []Observer

// RequestHandled implements Observer.
func (o Observers) RequestHandled(tx Transaction, kind Kind, err error) {
	for _, obs := range o {
		obs.RequestHandled(tx, kind, err)
	}
}

// ConfigChanged implements Observer.
func (o Observers) ConfigChanged(field Field, cfg Config) {
	for _, obs := range o {
		obs.ConfigChanged(field, cfg)
	}
}

// Reprogrammed implements Observer.
func (o Observers) Reprogrammed(cfg Config, err error) {
	for _, obs := range o {
		obs.Reprogrammed(cfg, err)
	}
}
