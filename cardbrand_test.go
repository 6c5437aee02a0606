package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCard(t *testing.T) {
	tests := []struct {
		number string
		want   CardBrand
	}{
		{"4242424242424242", CardVisa},
		{"4242 4242 4242 4242", CardVisa},
		{"5555-5555-5555-4444", CardMasterCard},
		{"378282246310005", CardAmericanExpress},
		{"340000000000009", CardAmericanExpress},
		{"3530111333300000", CardUnknown},
		{"3", CardUnknown},
		{"6011000000000004", CardUnknown},
		{"", CardUnknown},
		{" - ", CardUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyCard(tt.number))
		})
	}
}

func TestLastFour(t *testing.T) {
	assert.Equal(t, "4242", lastFour("4242 4242 4242 4242"))
	assert.Equal(t, "0005", lastFour("378282246310005"))
	assert.Equal(t, "12", lastFour("1-2"))
	assert.Equal(t, "", lastFour(""))
}
