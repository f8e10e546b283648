// entable keeps a database in step with JSON entity definitions:
// validate the definitions, create the tables behind them, and compare
// them against the live schema.
package main

func main() {
	Execute()
}
