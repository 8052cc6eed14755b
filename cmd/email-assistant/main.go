// Command email-assistant drafts replies to customer emails with an LLM
// workflow, from the command line or as an HTTP service.
package main

func main() {
	Execute()
}
