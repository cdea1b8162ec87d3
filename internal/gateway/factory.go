package gateway

import (
	"github.com/siteassist/billing-engine/internal/config"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/httpclient"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/types"
)

// Registry resolves the adapter for a gateway. Adapters are constructed
// once at startup; resolution is a map lookup.
type Registry struct {
	adapters map[types.PaymentGateway]Adapter
}

func NewRegistry(cfg *config.Configuration, client httpclient.Client, log *logger.Logger) *Registry {
	adapters := map[types.PaymentGateway]Adapter{}

	if cfg.Gateways.Stripe.SecretKey != "" {
		adapters[types.PaymentGatewayStripe] = NewStripeAdapter(&cfg.Gateways.Stripe, log)
	}
	if cfg.Gateways.Razorpay.KeyID != "" {
		adapters[types.PaymentGatewayRazorpay] = NewRazorpayAdapter(&cfg.Gateways.Razorpay, log)
	}
	if cfg.Gateways.PayPal.ClientID != "" {
		adapters[types.PaymentGatewayPayPal] = NewPayPalAdapter(&cfg.Gateways.PayPal, client, log)
	}

	return &Registry{adapters: adapters}
}

// NewRegistryWithAdapters builds a registry from prebuilt adapters.
func NewRegistryWithAdapters(adapters ...Adapter) *Registry {
	m := make(map[types.PaymentGateway]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Gateway()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(gateway types.PaymentGateway) (Adapter, error) {
	adapter, ok := r.adapters[gateway]
	if !ok {
		return nil, ierr.NewError("gateway not configured").
			WithHintf("Payment gateway %s is not configured", gateway).
			Mark(ierr.ErrInvalidOperation)
	}
	return adapter, nil
}
