package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const urlSafeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"

// FeedTokenLength gives 43*6 = 258 bits of entropy.
const FeedTokenLength = 43

const oauthStateLength = 32

// GenerateFeedToken returns an opaque, URL-safe token for calendar feed subscriptions.
func GenerateFeedToken() (string, error) {
	return gonanoid.Generate(urlSafeAlphabet, FeedTokenLength)
}

func GenerateOAuthState() (string, error) {
	return gonanoid.Generate(urlSafeAlphabet, oauthStateLength)
}
