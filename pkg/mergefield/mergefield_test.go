package mergefield

import "testing"

func TestResolveName(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{"empty incoming keeps existing", "John", "", "John"},
		{"empty existing takes incoming", "", "John", "John"},
		{"longer incoming wins", "John", "Johnathan", "Johnathan"},
		{"shorter incoming loses", "Johnathan", "John", "Johnathan"},
		{"case-insensitive tie keeps existing", "John", "JOHN", "John"},
		{"equal length keeps existing", "Anna", "Lisa", "Anna"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.existing, tt.incoming, KindName); got != tt.want {
				t.Errorf("Resolve(%q, %q, KindName) = %q, want %q", tt.existing, tt.incoming, got, tt.want)
			}
		})
	}
}

func TestResolveCompany(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{"legal marker wins", "Acme", "Acme Inc", "Acme Inc"},
		{"legal marker defends", "Acme Inc", "Acme", "Acme Inc"},
		{"gmbh marker wins", "Siemens", "Siemens GmbH", "Siemens GmbH"},
		{"three chars longer wins", "Acme", "Acme Group", "Acme Group"},
		{"marginally longer loses", "Acme", "Acme2", "Acme"},
		{"both legal, tie keeps existing", "Acme Inc", "Bcme Ltd", "Acme Inc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.existing, tt.incoming, KindCompany); got != tt.want {
				t.Errorf("Resolve(%q, %q, KindCompany) = %q, want %q", tt.existing, tt.incoming, got, tt.want)
			}
		})
	}
}

func TestResolveTitle(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{"seniority marker wins", "Engineer", "Senior Engineer", "Senior Engineer"},
		{"seniority marker defends", "VP Sales", "Sales", "VP Sales"},
		{"five chars longer wins", "Engineer", "Software Engineer", "Software Engineer"},
		{"four chars longer loses", "Engineer", "Engineering", "Engineer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.existing, tt.incoming, KindTitle); got != tt.want {
				t.Errorf("Resolve(%q, %q, KindTitle) = %q, want %q", tt.existing, tt.incoming, got, tt.want)
			}
		})
	}
}

func TestResolvePhone(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{"international prefix wins", "555 1234", "+1 555 1234", "+1 555 1234"},
		{"international prefix defends", "+1 555 1234", "555 1234", "+1 555 1234"},
		{"extension marker wins", "555 1234", "555 1234 ext 12", "555 1234 ext 12"},
		{"more digits wins", "555 1234", "555 123456", "555 123456"},
		{"fewer digits loses", "555 123456", "555 1234", "555 123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.existing, tt.incoming, KindPhone); got != tt.want {
				t.Errorf("Resolve(%q, %q, KindPhone) = %q, want %q", tt.existing, tt.incoming, got, tt.want)
			}
		})
	}
}

// Resolving twice with the same inputs must yield the same winner, and
// re-merging the winner with the old incoming value must not regress it.
func TestResolveIdempotent(t *testing.T) {
	cases := []struct {
		existing string
		incoming string
		kind     Kind
	}{
		{"John", "Johnathan", KindName},
		{"Acme", "Acme Inc", KindCompany},
		{"Engineer", "Senior Engineer", KindTitle},
		{"555 1234", "+1 555 1234", KindPhone},
		{"Acme Inc", "Acme", KindCompany},
	}
	for _, c := range cases {
		first := Resolve(c.existing, c.incoming, c.kind)
		second := Resolve(first, c.incoming, c.kind)
		if first != second {
			t.Errorf("Resolve not idempotent for (%q, %q): first %q, second %q", c.existing, c.incoming, first, second)
		}
	}
}

func TestResolveNameFromSplit(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		want     string
	}{
		{"fewer words never replaces", "John Smith", "Johnathan", "John Smith"},
		{"equal words, longer wins", "John Smith", "Johnathan Smithers", "Johnathan Smithers"},
		{"empty incoming keeps existing", "John", "", "John"},
		{"empty existing takes incoming", "", "John", "John"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveNameFromSplit(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("ResolveNameFromSplit(%q, %q) = %q, want %q", tt.existing, tt.incoming, got, tt.want)
			}
		})
	}
}
