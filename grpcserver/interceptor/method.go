/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"slices"
	"strings"
)

const unknownMethodPart = "unknown"

// splitFullMethodName splits "/hello.HelloService/SayHello" into the service and method names.
func splitFullMethodName(fullMethod string) (service string, method string) {
	service, method, found := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !found {
		return unknownMethodPart, unknownMethodPart
	}
	return service, method
}

func isMethodExcluded(fullMethod string, excludedMethods []string) bool {
	return slices.Contains(excludedMethods, fullMethod)
}
