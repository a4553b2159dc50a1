// Command simulator runs orbital debris avoidance scenarios.
package main

func main() {
	Execute()
}
