// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package emailcheck

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// maxEmailLength is the RFC 5321 path limit.
const maxEmailLength = 254

var (
	// structureRegex is the conservative local@domain.tld shape.
	structureRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// tldRegex requires an alphabetic top-level label of two or more characters.
	tldRegex = regexp.MustCompile(`^[a-z]{2,}$`)

	// numericLabelRegex matches a purely numeric domain label.
	numericLabelRegex = regexp.MustCompile(`^[0-9]+$`)

	// suspiciousPatterns are matched against the normalised address in order.
	// Any match rejects.
	suspiciousPatterns = []*regexp.Regexp{
		// Short alphabetic stem followed by a long digit run (ab1234567@)
		regexp.MustCompile(`^[a-z]{1,3}[0-9]{5,}@`),
		// Local part starting with four or more digits
		regexp.MustCompile(`^[0-9]{4,}`),
		// Throwaway and bot-like stems
		regexp.MustCompile(`^(test|temp|tmp|fake|spam|bot|noreply|no-reply|null|asdf|qwerty|xxx)[0-9._-]*@`),
		// Four or more separators in the local part
		regexp.MustCompile(`^(?:[^@._-]*[._-]){4,}[^@]*@`),
		// More than one plus tag
		regexp.MustCompile(`\+[^@]*\+[^@]*@`),
		// Doubled dots anywhere
		regexp.MustCompile(`\.\.`),
		// High-abuse top-level domains
		regexp.MustCompile(`\.(tk|ml|ga|cf|gq|xyz|top|click|loan|work|buzz)$`),
	}

	lowerCaser = cases.Lower(language.Und)
)

// Normalize trims, NFKC-normalises and lower-cases an address so that
// full-width and mixed-case variants compare equal.
func Normalize(email string) string {
	return lowerCaser.String(norm.NFKC.String(strings.TrimSpace(email)))
}

// validDomainShape checks the dot separator, the top-level label and
// rejects empty or purely numeric labels.
func validDomainShape(domain string) bool {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}

	for _, label := range labels {
		if label == "" || numericLabelRegex.MatchString(label) {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}

	return tldRegex.MatchString(labels[len(labels)-1])
}

// builtinDisposable is the last-resort blocklist used when neither the remote
// source nor a persisted copy is available.
var builtinDisposable = []string{
	"10minutemail.com",
	"20minutemail.com",
	"discard.email",
	"dispostable.com",
	"emailondeck.com",
	"fakeinbox.com",
	"getairmail.com",
	"getnada.com",
	"guerrillamail.com",
	"guerrillamail.net",
	"guerrillamailblock.com",
	"maildrop.cc",
	"mailinator.com",
	"mailnesia.com",
	"mintemail.com",
	"mohmal.com",
	"sharklasers.com",
	"spamgourmet.com",
	"temp-mail.org",
	"tempail.com",
	"tempmail.com",
	"tempmailo.com",
	"throwawaymail.com",
	"trashmail.com",
	"yopmail.com",
}
