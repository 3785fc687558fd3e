package hprtree

const packageName = "hprtree: "

const errBuilderConsumed = "builder already built"

func textPanic(text string) {
	panic(packageName + text)
}
