package domain

import (
	"errors"
	"testing"
)

func TestNewProduct(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		price    float64
		wantErr  error
	}{
		{name: "valid", quantity: 10, price: 1000.0},
		{name: "zero quantity is allowed", quantity: 0, price: 20.0},
		{name: "tiny price", quantity: 1, price: 0.01},
		{name: "negative quantity", quantity: -1, price: 1000.0, wantErr: ErrQuantityNegative},
		{name: "zero price", quantity: 10, price: 0.0, wantErr: ErrPriceNotPositive},
		{name: "negative price", quantity: 10, price: -5.0, wantErr: ErrPriceNotPositive},
		{name: "quantity checked first", quantity: -3, price: -3.0, wantErr: ErrQuantityNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, err := NewProduct("Table", tt.quantity, tt.price)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if product != nil {
					t.Fatalf("expected nil product on error, got %+v", product)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if product.ID != 0 {
				t.Fatalf("new product must not have an id, got %d", product.ID)
			}
			if product.Name != "Table" || product.Quantity != tt.quantity || product.Price != tt.price {
				t.Fatalf("unexpected product: %+v", product)
			}
		})
	}
}

func TestNewProduct_PropertyGrid(t *testing.T) {
	for q := -3; q <= 3; q++ {
		for _, p := range []float64{-1, 0, 0.5, 1, 1000} {
			_, err := NewProduct("grid", q, p)
			wantOK := q >= 0 && p > 0
			if wantOK && err != nil {
				t.Fatalf("q=%d p=%v: unexpected error %v", q, p, err)
			}
			if !wantOK && err == nil {
				t.Fatalf("q=%d p=%v: expected error", q, p)
			}
		}
	}
}

func TestProduct_Available(t *testing.T) {
	if (&Product{Quantity: 0}).Available() {
		t.Fatal("product with zero quantity must not be available")
	}
	if !(&Product{Quantity: 1}).Available() {
		t.Fatal("product with stock must be available")
	}
}

func TestNewCustomer(t *testing.T) {
	customer := NewCustomer("Bradley Pitt", "bradley@gmail.com")
	if customer.ID != 0 {
		t.Fatalf("expected no id, got %d", customer.ID)
	}
	if customer.Name != "Bradley Pitt" || customer.Email != "bradley@gmail.com" {
		t.Fatalf("unexpected customer: %+v", customer)
	}
}
