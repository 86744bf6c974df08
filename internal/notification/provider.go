package notification

import (
	"context"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/killclip/internal/errors"
)

// Provider delivers notifications to one destination.
type Provider interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// ShoutrrrProvider sends through nicholas-fedor/shoutrrr with one sender for all URLs.
type ShoutrrrProvider struct {
	name   string
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrProvider validates urls and builds the sender.
func NewShoutrrrProvider(name string, urls []string, timeout time.Duration) (*ShoutrrrProvider, error) {
	sp := &ShoutrrrProvider{
		name: strings.TrimSpace(name),
		urls: slices.Clone(urls),
	}
	if sp.name == "" {
		sp.name = "shoutrrr"
	}
	if len(sp.urls) == 0 {
		return nil, errors.New(errors.NewStd("at least one notification URL is required")).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(sp.urls...)
	if err != nil {
		return nil, errors.New(wrapSanitized(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	sp.sender = sender
	return sp, nil
}

// Name implements Provider.
func (s *ShoutrrrProvider) Name() string { return s.name }

// Send implements Provider. The router applies its own timeout.
func (s *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	var sendErrs []error
	for _, e := range s.sender.Send(n.Message, &params) {
		if e != nil {
			sendErrs = append(sendErrs, wrapSanitized(e))
		}
	}
	if len(sendErrs) == 0 {
		return nil
	}
	return errors.New(errors.Join(sendErrs...)).
		Component("notification").
		Category(errors.CategoryNotification).
		Context("provider", s.name).
		Build()
}
