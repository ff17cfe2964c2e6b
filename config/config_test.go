// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/siemens/kcap"
	"github.com/spf13/pflag"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const profile = `defaults:
  ssh-user: ops
  interface: eth0
  jump: bastion
identities:
  ops:
    user: ops
    key-file: /keys/id_ed25519
    passphrase-env: KCAP_TEST_PASSPHRASE
  legacy:
    user: admin
    password-env: KCAP_TEST_PASSWORD
jumps:
  bastion:
    host: bastion.example.org
    identity: ops
  edge:
    host: 10.0.0.1
    port: 2222
    user: root
    identity: legacy
`

var _ = Describe("configuration", func() {

	It("loads a profile", func() {
		name := filepath.Join(GinkgoT().TempDir(), "config.yaml")
		Expect(os.WriteFile(name, []byte(profile), 0600)).To(Succeed())
		c, err := Load(name, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Defaults).To(HaveKeyWithValue("interface", "eth0"))
		Expect(c.Identities).To(HaveLen(2))
		Expect(c.Jumps).To(HaveKeyWithValue("edge", Jump{
			Host: "10.0.0.1", Port: 2222, User: "root", Identity: "legacy"}))
	})

	It("treats a missing optional profile as empty", func() {
		name := filepath.Join(GinkgoT().TempDir(), "config.yaml")
		c, err := Load(name, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(&Config{}))

		_, err = Load(name, true)
		Expect(err).To(HaveOccurred())

		c, err = Load("", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Jumps).To(BeEmpty())
	})

	It("accepts an empty profile", func() {
		c, err := Parse(strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Defaults).To(BeEmpty())
	})

	DescribeTable("rejects invalid profiles",
		func(y string) {
			_, err := Parse(strings.NewReader(y))
			Expect(err).To(HaveOccurred())
		},
		Entry("unknown section", "passwords:\n  root: foobar\n"),
		Entry("password value in identity", "identities:\n  ops:\n    password: foobar\n"),
		Entry("jump without host", "jumps:\n  j:\n    port: 22\n"),
		Entry("jump with invalid port", "jumps:\n  j:\n    host: j\n    port: 123456\n"),
		Entry("unknown identity", "jumps:\n  j:\n    host: j\n    identity: nobody\n"),
	)

	Context("credentials", func() {

		var c *Config

		BeforeEach(func() {
			var err error
			c, err = Parse(strings.NewReader(profile))
			Expect(err).NotTo(HaveOccurred())
		})

		It("takes secrets from the environment", func() {
			GinkgoT().Setenv("KCAP_TEST_PASSWORD", "s3cr3t")
			user, auth, err := c.Auth("legacy")
			Expect(err).NotTo(HaveOccurred())
			Expect(user).To(Equal("admin"))
			Expect(auth).To(Equal(kcap.Auth{Password: "s3cr3t"}))
		})

		It("complains about missing secrets", func() {
			os.Unsetenv("KCAP_TEST_PASSPHRASE")
			_, _, err := c.Auth("ops")
			Expect(err).To(MatchError(ContainSubstring("KCAP_TEST_PASSPHRASE")))

			_, _, err = c.Auth("nobody")
			Expect(err).To(HaveOccurred())
		})

		It("resolves named jump hosts", func() {
			GinkgoT().Setenv("KCAP_TEST_PASSPHRASE", "pa55")
			ep, ok, err := c.JumpEndpoint("bastion")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(ep).To(Equal(kcap.Endpoint{
				Host: "bastion.example.org",
				User: "ops",
				Auth: kcap.Auth{KeyFile: "/keys/id_ed25519", Passphrase: "pa55"},
			}))

			_, ok, err = c.JumpEndpoint("ops@somewhere")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

	})

	It("applies defaults to flags not set on the command line", func() {
		c, err := Parse(strings.NewReader(profile))
		Expect(err).NotTo(HaveOccurred())

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		iface := flags.StringP("interface", "i", "any", "")
		user := flags.String("ssh-user", "", "")
		jumps := flags.StringArray("jump", nil, "")
		Expect(flags.Parse([]string{"--ssh-user", "root"})).To(Succeed())

		Expect(c.ApplyDefaults(flags)).To(Succeed())
		Expect(*iface).To(Equal("eth0"))
		Expect(*user).To(Equal("root"))
		Expect(*jumps).To(Equal([]string{"bastion"}))
		Expect(flags.Lookup("interface").Changed).To(BeFalse())
	})

	It("rejects invalid default values", func() {
		c := &Config{Defaults: map[string]string{"port": "https"}}
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int("port", 0, "")
		Expect(c.ApplyDefaults(flags)).To(MatchError(ContainSubstring("--port")))
	})

})
