/*
Copyright © 2026 JACOB ARTHURS
*/
package main

import "github.com/jacobarthurs/showplan/cmd"

func main() {
	cmd.Execute()
}
