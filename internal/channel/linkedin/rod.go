package linkedin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type RodConfig struct {
	ControlURL    string
	Headless      bool
	SessionCookie string
	PageTimeout   time.Duration
}

// RodMessenger drives a Chromium instance through the DevTools protocol.
// Each send opens and closes its own tab.
type RodMessenger struct {
	browser *rod.Browser
	timeout time.Duration
}

// NewRodMessenger connects to cfg.ControlURL, or launches a local browser
// when it is empty, and installs the li_at session cookie.
func NewRodMessenger(cfg RodConfig) (*RodMessenger, error) {
	controlURL := cfg.ControlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(cfg.Headless).Leakless(false).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	if cfg.SessionCookie != "" {
		err := browser.SetCookies([]*proto.NetworkCookieParam{{
			Name:     "li_at",
			Value:    cfg.SessionCookie,
			Domain:   ".linkedin.com",
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
		}})
		if err != nil {
			browser.Close()
			return nil, fmt.Errorf("set session cookie: %w", err)
		}
	}

	timeout := cfg.PageTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &RodMessenger{browser: browser, timeout: timeout}, nil
}

func (m *RodMessenger) Close() error {
	return m.browser.Close()
}

const openMessageJS = `() => {
	if (document.querySelector('.not-found__container, .profile-unavailable')) {
		return { missing: true, found: false };
	}
	const selectors = [
		'button[aria-label^="Message"]',
		'button.pvs-profile-actions__action[aria-label*="Message"]',
	];
	for (const sel of selectors) {
		const btn = document.querySelector(sel);
		if (btn && !btn.disabled) {
			btn.click();
			return { missing: false, found: true };
		}
	}
	return { missing: false, found: false };
}`

const typeMessageJS = `(content) => {
	const input = document.querySelector('div.msg-form__contenteditable[contenteditable="true"], div[role="textbox"][contenteditable="true"]');
	if (!input) {
		return false;
	}
	input.focus();
	input.innerText = content;
	input.dispatchEvent(new InputEvent('input', { bubbles: true }));
	return true;
}`

const sendMessageJS = `() => {
	const btn = document.querySelector('button.msg-form__send-button, button[type="submit"].msg-form__send-button');
	if (!btn || btn.disabled) {
		return false;
	}
	btn.click();
	return true;
}`

func (m *RodMessenger) SendMessage(ctx context.Context, profileURL, text string) (string, error) {
	page, err := m.browser.Page(proto.TargetCreateTarget{URL: profileURL})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx).Timeout(m.timeout)
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if err := checkLocation(p); err != nil {
		return "", err
	}
	if err := p.WaitStable(time.Second); err != nil {
		return "", fmt.Errorf("wait profile: %w", err)
	}

	res, err := p.Eval(openMessageJS)
	if err != nil {
		return "", fmt.Errorf("open conversation: %w", err)
	}
	if res.Value.Get("missing").Bool() {
		return "", ErrProfileNotFound
	}
	if !res.Value.Get("found").Bool() {
		return "", ErrMessagingUnavailable
	}

	if _, err := p.Element("div.msg-form__contenteditable"); err != nil {
		return "", fmt.Errorf("wait message form: %w", err)
	}
	res, err = p.Eval(typeMessageJS, text)
	if err != nil {
		return "", fmt.Errorf("type message: %w", err)
	}
	if !res.Value.Bool() {
		return "", ErrMessagingUnavailable
	}

	res, err = p.Eval(sendMessageJS)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if !res.Value.Bool() {
		return "", ErrMessagingUnavailable
	}

	info, err := p.Info()
	if err != nil {
		return profileURL, nil
	}
	return info.URL, nil
}

// checkLocation detects redirects away from the requested profile.
func checkLocation(p *rod.Page) error {
	info, err := p.Info()
	if err != nil {
		return fmt.Errorf("page info: %w", err)
	}
	switch {
	case strings.Contains(info.URL, "/checkpoint/"), strings.Contains(info.URL, "/authwall"), strings.Contains(info.URL, "/login"):
		return fmt.Errorf("%w: redirected to %s", ErrCheckpoint, info.URL)
	case strings.Contains(info.URL, "/404"), strings.Contains(info.URL, "/in/unavailable"):
		return ErrProfileNotFound
	}
	return nil
}
