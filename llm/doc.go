// Package llm provides a provider-neutral client for hosted generative-language models.
//
// A Client routes a unified Request to one registered Backend (Gemini, OpenAI or
// AWS Bedrock Converse), picks a text or vision model, and reports failures as
// *Error values carrying a structured ErrorKind so callers never inspect
// human-readable messages.
package llm
