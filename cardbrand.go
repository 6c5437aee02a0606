package main

import "strings"

// CardBrand is the card network detected from the card number prefix
type CardBrand string

const (
	CardVisa            CardBrand = "Visa"
	CardMasterCard      CardBrand = "MasterCard"
	CardAmericanExpress CardBrand = "AmericanExpress"
	CardUnknown         CardBrand = "Unknown"
)

var cardSeparators = strings.NewReplacer(" ", "", "-", "")

// cleanCardNumber strips the spaces and hyphens customers type in card numbers
func cleanCardNumber(number string) string {
	return cardSeparators.Replace(number)
}

// ClassifyCard maps a card number to its brand. It never fails.
func ClassifyCard(number string) CardBrand {
	clean := cleanCardNumber(number)
	if clean == "" {
		return CardUnknown
	}

	switch clean[0] {
	case '4':
		return CardVisa
	case '5':
		return CardMasterCard
	case '3':
		if len(clean) >= 2 && (clean[1] == '4' || clean[1] == '7') {
			return CardAmericanExpress
		}
	}
	return CardUnknown
}

// lastFour returns the last four digits of the cleaned card number
func lastFour(number string) string {
	clean := cleanCardNumber(number)
	if len(clean) <= 4 {
		return clean
	}
	return clean[len(clean)-4:]
}
