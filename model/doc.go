// Package model defines the provider-agnostic abstractions for talking to the
// external completion service.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Surface reasoning side channels next to the visible answer (Completion)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, OpenAI-compatible servers) implement Model
// and Catalog so higher layers remain decoupled from vendor SDKs.
package model
