package validation

import (
	"testing"

	"github.com/mmeshcher/ishop/internal/model"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{name: "formatted", phone: "+996 (555) 12-34-56", want: "996555123456"},
		{name: "digits only", phone: "996555123456", want: "996555123456"},
		{name: "empty", phone: "", want: ""},
		{name: "non ascii digits dropped", phone: "+996٥٥٥", want: "996"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.phone); got != tt.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.phone, got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		address string
		mode    model.ServiceMode
		want    FieldErrors
	}{
		{
			name:  "valid pickup",
			phone: "+996555123456",
			mode:  model.ServiceModePickup,
			want:  nil,
		},
		{
			name:  "missing phone",
			phone: "+",
			mode:  model.ServiceModePickup,
			want:  FieldErrors{FieldPhone: MsgRequired},
		},
		{
			name:  "short phone",
			phone: "+99655512345",
			mode:  model.ServiceModeDineIn,
			want:  FieldErrors{FieldPhone: MsgPhoneTooShort},
		},
		{
			name:    "delivery without address",
			phone:   "996555123456",
			address: "   ",
			mode:    model.ServiceModeDelivery,
			want:    FieldErrors{FieldAddress: MsgRequired},
		},
		{
			name:    "delivery short address counts letters after trim",
			phone:   "996555123456",
			address: "  Ул  ",
			mode:    model.ServiceModeDelivery,
			want:    FieldErrors{FieldAddress: MsgAddressShort},
		},
		{
			name:    "delivery valid cyrillic address",
			phone:   "996555123456",
			address: "Чуй 1",
			mode:    model.ServiceModeDelivery,
			want:    nil,
		},
		{
			name:    "address ignored for pickup",
			phone:   "996555123456",
			address: "",
			mode:    model.ServiceModePickup,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.phone, tt.address, tt.mode)
			if len(got) != len(tt.want) {
				t.Fatalf("Check() = %v, want %v", got, tt.want)
			}
			for field, msg := range tt.want {
				if got[field] != msg {
					t.Fatalf("Check()[%s] = %q, want %q", field, got[field], msg)
				}
			}
		})
	}
}
