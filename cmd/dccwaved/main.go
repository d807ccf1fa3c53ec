// dccwaved generates a DCC waveform on the rails and keeps it fed.
package main

func main() {
	Execute()
}
