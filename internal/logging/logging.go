// Package logging builds the process logger.
package logging

import "go.uber.org/zap"

// New returns a development logger when development is true and a JSON
// production logger otherwise.
func New(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
