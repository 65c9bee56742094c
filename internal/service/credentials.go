package service

import (
	"fmt"

	"golang.org/x/oauth2"

	cfg "postpilot/configs"
)

// InstagramCredentials identify one credentialed business account.
type InstagramCredentials struct {
	BusinessAccountID string
	Token             oauth2.TokenSource
}

// TwitterCredentials carry the OAuth 1.0a key pair for one account plus the
// shared app consumer pair.
type TwitterCredentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// CredentialProvider resolves an account ref to already-acquired platform
// credentials. Token acquisition and refresh live with the external auth
// collaborator; this subsystem only consumes the result.
type CredentialProvider interface {
	Instagram(accountRef string) (*InstagramCredentials, error)
	Twitter(accountRef string) (*TwitterCredentials, error)
}

type staticCredentials struct {
	instagram map[string]*InstagramCredentials
	twitter   map[string]*TwitterCredentials
}

// NewStaticCredentials builds a provider from the configured account maps.
func NewStaticCredentials(c cfg.Config) CredentialProvider {
	p := &staticCredentials{
		instagram: make(map[string]*InstagramCredentials),
		twitter:   make(map[string]*TwitterCredentials),
	}

	token := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Instagram.AccessToken})
	for ref, businessID := range c.Instagram.Accounts {
		p.instagram[ref] = &InstagramCredentials{BusinessAccountID: businessID, Token: token}
	}
	for ref, acc := range c.Twitter.Accounts {
		p.twitter[ref] = &TwitterCredentials{
			ConsumerKey:    c.Twitter.ConsumerKey,
			ConsumerSecret: c.Twitter.ConsumerSecret,
			AccessToken:    acc.AccessToken,
			AccessSecret:   acc.AccessSecret,
		}
	}
	return p
}

func (p *staticCredentials) Instagram(accountRef string) (*InstagramCredentials, error) {
	creds, ok := p.instagram[accountRef]
	if !ok {
		return nil, fmt.Errorf("no instagram credentials for account %q", accountRef)
	}
	return creds, nil
}

func (p *staticCredentials) Twitter(accountRef string) (*TwitterCredentials, error) {
	creds, ok := p.twitter[accountRef]
	if !ok {
		return nil, fmt.Errorf("no twitter credentials for account %q", accountRef)
	}
	return creds, nil
}
