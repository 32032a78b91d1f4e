package filter

/*
Here the Env used in message policies is defined.
Once this struct is fixed, it should not be changed, otherwise configured policies may not compile any more
(f.e. if properties are renamed etc.)
*/

type Sender struct {
	Id       string
	Username string
}

type Room struct {
	Id   string
	Type string
}

type Env struct {
	Room
	Sender
	Body     string
	HasVoice bool
	HasFile  bool
	IsReply  bool
}
