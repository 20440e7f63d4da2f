package services

import (
	"bufio"
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

//go:embed common_passwords.txt
var commonPasswordList string

var commonPasswords = func() map[string]struct{} {
	set := make(map[string]struct{})
	sc := bufio.NewScanner(strings.NewReader(commonPasswordList))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			set[strings.ToLower(line)] = struct{}{}
		}
	}
	return set
}()

type BcryptHasher struct {
	cost      int
	dummyHash []byte
}

func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("taskify-timing-equaliser"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &BcryptHasher{cost: cost, dummyHash: dummy}, nil
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// VerifyDummy burns the same time as Verify for a login whose email matched
// no user.
func (h *BcryptHasher) VerifyDummy(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plain))
}

// PasswordPolicy is the strength check applied on registration and password change.
type PasswordPolicy struct {
	MinLength int
	// MaxSimilarity is the ratio above which a password counts as too similar
	// to the user's email or name.
	MaxSimilarity float64
}

func NewPasswordPolicy(minLength int) *PasswordPolicy {
	return &PasswordPolicy{MinLength: minLength, MaxSimilarity: 0.7}
}

// Check returns every rule the password breaks, or nil.
func (p *PasswordPolicy) Check(password, email, name string) []string {
	var problems []string

	if utf8.RuneCountInString(password) < p.MinLength {
		problems = append(problems, fmt.Sprintf("This password is too short. It must contain at least %d characters.", p.MinLength))
	}

	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		problems = append(problems, "This password is entirely numeric.")
	}

	if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]; ok {
		problems = append(problems, "This password is too common.")
	}

	lower := strings.ToLower(password)
	attrs := []struct{ label, value string }{
		{"email", strings.ToLower(email)},
		{"name", strings.ToLower(name)},
	}
	for _, attr := range attrs {
		if attr.value == "" {
			continue
		}
		candidates := []string{attr.value}
		if attr.label == "email" {
			if at := strings.IndexByte(attr.value, '@'); at > 0 {
				candidates = append(candidates, attr.value[:at])
			}
		}
		candidates = append(candidates, strings.FieldsFunc(attr.value, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})...)

		for _, c := range candidates {
			if similarity(lower, c) >= p.MaxSimilarity {
				problems = append(problems, fmt.Sprintf("The password is too similar to the %s.", attr.label))
				break
			}
		}
	}

	return problems
}

// similarity is 2*L/(len(a)+len(b)) where L is the length of the longest
// common substring.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	longest := 0
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > longest {
					longest = cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(longest) / float64(len(ra)+len(rb))
}
