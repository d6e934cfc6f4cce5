// Command facewatch watches a camera and publishes face events.
package main

func main() {
	Execute()
}
