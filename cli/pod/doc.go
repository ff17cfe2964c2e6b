/*
Package pod is the kcap CLI plugin for capturing inside pods, reached via
"kubectl exec".
*/
package pod
