// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing configurations, conversations and
// push observers. They are not intended for production usage.
package testutil
