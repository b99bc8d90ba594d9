// Package irc holds the small amount of IRC protocol knowledge the
// Processor needs: tokenizing raw lines, RFC 2812 case folding, and
// building outbound command lines.
package irc
